//go:build windows

package engine

import "github.com/born-ml/opgraph/internal/device/webgpu"

func newWebGPU() (Device, error) {
	dev, err := webgpu.New()
	if err != nil {
		return nil, err
	}
	return dev, nil
}
