// Package geoip resolves client addresses to a coarse location for
// compilation view analytics. Resolution is best-effort: without a
// MaxMind database on disk every lookup returns an empty Location.
package geoip

import (
	"log/slog"
	"net"

	"github.com/oschwald/maxminddb-golang"
)

type Location struct {
	Country string
	City    string
}

type Resolver struct {
	db *maxminddb.Reader
}

type record struct {
	Country struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
	City struct {
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"city"`
}

// New opens the MaxMind database at dbPath. An empty path or an
// unreadable file yields a disabled resolver rather than an error, so
// deployments without a database still serve watch pages.
func New(dbPath string) *Resolver {
	if dbPath == "" {
		return &Resolver{}
	}
	db, err := maxminddb.Open(dbPath)
	if err != nil {
		slog.Warn("geoip database unavailable, view locations disabled", "path", dbPath, "error", err)
		return &Resolver{}
	}
	slog.Info("geoip database loaded", "path", dbPath)
	return &Resolver{db: db}
}

func (r *Resolver) Locate(ipStr string) Location {
	if r.db == nil || ipStr == "" {
		return Location{}
	}
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return Location{}
	}
	var rec record
	if err := r.db.Lookup(ip, &rec); err != nil {
		return Location{}
	}
	return Location{Country: rec.Country.ISOCode, City: rec.City.Names["en"]}
}

func (r *Resolver) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}
