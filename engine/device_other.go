//go:build !windows

package engine

import "errors"

func newWebGPU() (Device, error) {
	return nil, errors.New("engine: webgpu device is only available on windows")
}
