package bundles

import (
	"errors"
	"fmt"
	"strings"

	"github.com/enterprise-contract/ec-policies/internal/ir"
)

const shortDigestLen = 12

var ErrMalformedDigest = errors.New("malformed digest, expected <algorithm>:<hex>")

// Process adds browsing URLs and a short digest to every manifest record.
// Repositories and records keep manifest order.
func Process(m Manifest) (ir.Repos, error) {
	out := make(ir.Repos, 0, len(m.Repos))
	for _, repo := range m.Repos {
		url := RepoURL(repo.Name)
		r := ir.Repo{Name: repo.Name, URL: url, Entries: make([]ir.BundleEntry, 0, len(repo.Records))}
		for _, rec := range repo.Records {
			short, err := ShortDigest(rec.Digest)
			if err != nil {
				return nil, fmt.Errorf("%s:%s: %w", repo.Name, rec.Tag, err)
			}
			r.Entries = append(r.Entries, ir.BundleEntry{
				Tag:         rec.Tag,
				Digest:      rec.Digest,
				Extra:       rec.Extra,
				DigestURL:   url + "/manifest/" + rec.Digest,
				TagURL:      url + "?tab=tags&tag=" + rec.Tag,
				ShortDigest: short,
			})
		}
		out = append(out, r)
	}
	return out, nil
}

// RepoURL converts a repository name to its browsing URL. quay.io redirects
// from https://<name> too, but quay.io/repository/<name> is its preferred form.
// TODO: detect the preferred repository URLs of other popular registries.
func RepoURL(name string) string {
	if rest, ok := strings.CutPrefix(name, "quay.io/"); ok {
		return "https://quay.io/repository/" + rest
	}
	return "https://" + name
}

// ShortDigest is the first 12 characters after the algorithm prefix. It is
// cosmetic, nothing is verified.
func ShortDigest(digest string) (string, error) {
	_, hex, ok := strings.Cut(digest, ":")
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrMalformedDigest, digest)
	}
	if len(hex) > shortDigestLen {
		hex = hex[:shortDigestLen]
	}
	return hex, nil
}
