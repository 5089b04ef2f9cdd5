package ir

import (
	"bytes"
	"encoding/json"
)

// BundleEntry is one acceptable image reference, enriched with browsing URLs.
type BundleEntry struct {
	Tag         string
	Digest      string
	Extra       map[string]any // any other manifest fields, passed through
	DigestURL   string
	TagURL      string
	ShortDigest string
}

func (b BundleEntry) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(b.Extra)+5)
	for k, v := range b.Extra {
		m[k] = v
	}
	m["tag"] = b.Tag
	m["digest"] = b.Digest
	m["digest_url"] = b.DigestURL
	m["tag_url"] = b.TagURL
	m["short_digest"] = b.ShortDigest
	return json.Marshal(m)
}

type Repo struct {
	Name    string        `json:"name"`
	URL     string        `json:"url"`
	Entries []BundleEntry `json:"entries"`
}

// Repos keeps repositories in manifest order and marshals as name -> entries.
type Repos []Repo

func (r Repos) Lookup(name string) ([]BundleEntry, bool) {
	for _, repo := range r {
		if repo.Name == name {
			return repo.Entries, true
		}
	}
	return nil, false
}

// EntryCount sums entries over every repository.
func (r Repos) EntryCount() int {
	n := 0
	for _, repo := range r {
		n += len(repo.Entries)
	}
	return n
}

func (r Repos) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, repo := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(repo.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		entries := repo.Entries
		if entries == nil {
			entries = []BundleEntry{}
		}
		v, err := json.Marshal(entries)
		if err != nil {
			return nil, err
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
