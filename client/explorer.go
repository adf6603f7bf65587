package client

import (
	"net/url"
	"strings"
)

// DefaultExplorerURL is the public block explorer used for history links.
const DefaultExplorerURL = "https://explorer.aleo.org"

// ExplorerLink points at the confirmed transaction when finalID is
// well-formed, and at the caller's address page otherwise.
func ExplorerLink(explorerBase string, finalID TransactionID, callerAddress string) string {
	base := strings.TrimRight(explorerBase, "/")
	if base == "" {
		base = DefaultExplorerURL
	}
	if finalID.WellFormed() {
		return base + "/transaction/" + url.PathEscape(string(finalID))
	}
	if callerAddress == "" {
		return ""
	}
	return base + "/address/" + url.PathEscape(callerAddress)
}
