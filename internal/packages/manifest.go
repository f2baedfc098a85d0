package packages

import (
	"context"
	"fmt"

	"github.com/mrlokans/campussync/internal/transport"
)

// Ref identifies a package within a site.
type Ref struct {
	Component   string `json:"component"`
	ComponentID string `json:"component_id"`
}

func (r Ref) String() string {
	return r.Component + "/" + r.ComponentID
}

// File is one file of a package as reported by the server.
type File struct {
	URL  string `json:"fileurl"`
	Path string `json:"filepath"`
	Size int64  `json:"filesize"`
}

// Info is the server-side description of a package.
type Info struct {
	Revision int64  `json:"revision"`
	Files    []File `json:"files"`
}

// Manifest reports the current server revision and files of a package.
type Manifest interface {
	Package(ctx context.Context, siteID string, ref Ref, courseID string) (*Info, error)
}

const DefaultManifestCall = "core_course_get_package_manifest"

// TransportManifest reads manifests through the transport, caching them under
// ManifestCacheKey so Engine.Invalidate can drop them.
type TransportManifest struct {
	Reader transport.Reader
	Call   string
}

func (m *TransportManifest) Package(ctx context.Context, siteID string, ref Ref, courseID string) (*Info, error) {
	call := m.Call
	if call == "" {
		call = DefaultManifestCall
	}
	resp, err := m.Reader.Read(ctx, call, transport.Args{
		"component":   ref.Component,
		"componentid": ref.ComponentID,
		"courseid":    courseID,
	}, transport.ReadOptions{
		CacheKey: ManifestCacheKey(siteID, ref),
		Strategy: transport.PreferCache,
	})
	if err != nil {
		return nil, err
	}
	var info Info
	if err := resp.Decode(&info); err != nil {
		return nil, fmt.Errorf("decode manifest of %s: %w", ref, err)
	}
	return &info, nil
}

// ManifestCacheKey is the transport cache group of a package's manifest reads.
func ManifestCacheKey(siteID string, ref Ref) string {
	return manifestSitePrefix(siteID) + ref.Component + "|" + ref.ComponentID
}

func manifestSitePrefix(siteID string) string {
	return "package|" + siteID + "|"
}
