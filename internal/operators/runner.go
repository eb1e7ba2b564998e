package operators

import "github.com/born-ml/opgraph/internal/device"

// Run encodes op into cb on dev. Kernel errors are returned unchanged.
func Run(op Runnable, dev device.Device, cb device.CommandBuffer) error {
	return op.Run(dev, cb)
}
