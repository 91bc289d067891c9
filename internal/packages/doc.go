// Package packages resolves package metadata against an ordered list of feeds.
//
// Resolver owns a run-scoped cache keyed by package id so each distinct
// package is fetched at most once, regardless of how many projects declare it.
// Feeds are queried in configuration order and the first hit wins.
package packages
