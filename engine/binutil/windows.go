// +build windows

package binutil

import "github.com/holoverse/holoworld/engine/hwlog"

type nopRelease int

func (_ nopRelease) Release() {

}

func Daemonize() nopRelease {
	// Windows can not daemonize
	hwlog.Warnf("can not run in daemon mode in windows, -d ignored")
	return nopRelease(0)
}
