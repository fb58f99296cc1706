// Package banner prints the startup banner.
package banner

import (
	"fmt"
	"runtime"
)

const art = `
   ____                         ____ _           _
  / ___|_ __ ___  _   _ _ __   / ___| |__   __ _| |_
 | |  _| '__/ _ \| | | | '_ \ | |   | '_ \ / _` + "`" + ` | __|
 | |_| | | | (_) | |_| | |_) || |___| | | | (_| | |_
  \____|_|  \___/ \__,_| .__/  \____|_| |_|\__,_|\__|
                       |_|
`

// Print writes the banner and basic runtime info to stdout.
func Print(version, addr string) {
	fmt.Print(art)
	fmt.Printf("  groupchat %s  %s/%s  listening on %s\n\n", version, runtime.GOOS, runtime.GOARCH, addr)
}
