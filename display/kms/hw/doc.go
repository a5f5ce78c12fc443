// Package hw implements kms.Device with libdrm atomic modesetting, a GBM
// scanout surface and EGL native fence syncs. It needs cgo and the libdrm,
// gbm and egl development headers.
package hw
