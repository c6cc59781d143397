package auth

import (
	"fmt"
	"io"
	"strings"
)

// ShowLoginGuide explains which credentials kptnexport needs and where
// they are kept.
func ShowLoginGuide(w io.Writer) {
	rule := strings.Repeat("=", 72)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "KPTNCOOK LOGIN")
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "kptnexport signs in with the same account you use in the KptnCook app.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "You need:")
	fmt.Fprintln(w, "  1. The e-mail address of your KptnCook account")
	fmt.Fprintln(w, "  2. Its password")
	fmt.Fprintln(w, "  3. The KptnCook API key (kptnkey), unless KPTNCOOK_API_KEY is set")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Credentials are saved in the system keyring when one is available,")
	fmt.Fprintln(w, "otherwise in an encrypted file in your config directory.")
	fmt.Fprintln(w, "For CI use, set KPTNCOOK_EMAIL, KPTNCOOK_PASSWORD and KPTNCOOK_API_KEY")
	fmt.Fprintln(w, "instead; they take precedence over stored accounts.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, rule)
}

// ShowQuickLoginHint is the one-line version shown after a failed login
func ShowQuickLoginHint(w io.Writer) {
	fmt.Fprintln(w, "Run 'kptnexport auth login' or set KPTNCOOK_EMAIL / KPTNCOOK_PASSWORD / KPTNCOOK_API_KEY.")
}
