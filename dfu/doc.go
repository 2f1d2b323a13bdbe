// Package dfu implements the device-side state machine of the USB
// Device Firmware Upgrade 1.1 class, independent of any particular USB
// transport or flash implementation.
package dfu
