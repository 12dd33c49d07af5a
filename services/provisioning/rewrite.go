package provisioning

import (
	"net/url"
	"strings"

	"vpnstore/pkg/errutil"
)

// RewriteSubscriptionURL maps a panel's raw subscription link onto the
// externally published base, preserving the access token (the last path
// segment). Pure function so the rewrite is testable without a panel.
func RewriteSubscriptionURL(raw, publicBase string) (string, error) {
	if publicBase == "" {
		return raw, nil
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", errutil.ValidationFailed("malformed subscription url", errutil.WithErr(err))
	}

	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	token := segments[len(segments)-1]
	if token == "" {
		return "", errutil.ValidationFailed("subscription url carries no token")
	}

	base, err := url.Parse(publicBase)
	if err != nil {
		return "", errutil.ValidationFailed("malformed public base", errutil.WithErr(err))
	}

	base.Path = strings.TrimRight(base.Path, "/") + "/sub/" + token
	return base.String(), nil
}
