package registry

import (
	"crypto/sha1" //nolint:gosec
	"encoding/hex"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tender-intel/internal/model"
)

const maxSlugLen = 24

// NormalizeURL canonicalises a fetch URL so that cosmetic differences (case
// of the host, default ports, fragments, trailing slashes, query order) map
// to the same string.
func NormalizeURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", eris.Wrapf(err, "registry: parse url %q", raw)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", eris.Errorf("registry: url %q is not absolute", raw)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") || (u.Scheme == "ftp" && port == "21") {
		port = ""
	}
	if port != "" {
		host += ":" + port
	}
	u.Host = host
	u.Fragment = ""
	u.RawFragment = ""
	if len(u.Path) > 1 {
		u.Path = strings.TrimRight(u.Path, "/")
		u.RawPath = ""
	}
	if u.Path == "/" {
		u.Path = ""
	}
	if u.RawQuery != "" {
		u.RawQuery = u.Query().Encode()
	}
	return u.String(), nil
}

// SourceID derives the stable registry id <jurisdiction>-<host-slug>-<hash6>
// from the normalised fetch URL.
func SourceID(j model.Jurisdiction, fetchURL string) (string, error) {
	norm, err := NormalizeURL(fetchURL)
	if err != nil {
		return "", err
	}
	u, _ := url.Parse(norm)
	host := strings.TrimPrefix(u.Hostname(), "www.")
	slug := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return '-'
		}
	}, host)
	if len(slug) > maxSlugLen {
		slug = strings.TrimRight(slug[:maxSlugLen], "-")
	}
	sum := sha1.Sum([]byte(norm)) //nolint:gosec
	prefix := strings.ToLower(string(j))
	if prefix == "" {
		prefix = "global"
	}
	return prefix + "-" + slug + "-" + hex.EncodeToString(sum[:])[:6], nil
}
