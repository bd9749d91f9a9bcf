//go:build !linux

package controlapi

import "fmt"

func mkfifo(path string) error {
	return fmt.Errorf("control interface named pipes require linux")
}
