/*
	Helpers for loading contextual config.

	Config for cider means "things that are the operator's concerns",
	like which catalog mirror to talk to, as opposed to parameters of
	individual commands.
*/
package config

import (
	"os"
	"strings"
)

/*
	Return the base URL of the release catalog site.

	The default value is `"https://opensource.apple.com/"`;
	this can be overridden by the `CIDER_BASE_URL` environment
	variable (mostly useful for pointing tests at fixture servers).
	The returned value always carries a trailing slash.
*/
func GetCatalogBaseURL() string {
	base := os.Getenv("CIDER_BASE_URL")
	if base == "" {
		base = "https://opensource.apple.com/"
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base
}
