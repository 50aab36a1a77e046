package builder

import (
	"fmt"
	"net/url"
	"strings"
)

// renderCredentialHelper builds a POSIX git-credential-helper script (the
// "get" side of git's credential protocol) that serves exactly the
// credentials baked into the build tar -- no network round trip back to the
// coordination plane is needed from inside the container. git invokes a
// helper with one argument ("get") and a "key=value" block on stdin
// (protocol=, host=, path=); a matching helper prints username=/password=
// back on stdout.
func renderCredentialHelper(creds []Credential) string {
	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	b.WriteString("# Generated for this build only; matches credentials by host.\n")
	b.WriteString("if [ \"$1\" != \"get\" ]; then exit 0; fi\n")
	b.WriteString("host=\"\"\n")
	b.WriteString("while IFS='=' read -r key value; do\n")
	b.WriteString("  if [ \"$key\" = \"host\" ]; then host=\"$value\"; fi\n")
	b.WriteString("done\n\n")

	for _, c := range creds {
		host := hostOf(c.URL)
		if host == "" {
			continue
		}
		fmt.Fprintf(&b, "if [ \"$host\" = %q ]; then\n", host)
		fmt.Fprintf(&b, "  echo \"username=%s\"\n", shellEscape(c.Username))
		fmt.Fprintf(&b, "  echo \"password=%s\"\n", shellEscape(c.Password))
		b.WriteString("  exit 0\n")
		b.WriteString("fi\n")
	}

	return b.String()
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}

// shellEscape keeps a credential value safe inside the double-quoted string
// printed by the generated "echo" line above.
func shellEscape(s string) string {
	return strings.ReplaceAll(s, `"`, `\"`)
}
