// Package turbojpeg registers a libjpeg-turbo backend named "turbojpeg"
// with the decoder registry. The backend is only compiled with the
// turbojpeg build tag and cgo enabled:
//
//	go build -tags turbojpeg
//
// Without the tag, importing the package registers nothing.
package turbojpeg
