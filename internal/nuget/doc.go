// Package nuget reads package metadata from NuGet v3 feeds.
//
// A Client discovers the registration resource from the feed's service index,
// walks the registration pages of a package to find the requested version, and
// reports the union of the package's declared dependency ids across all target
// frameworks. Fetched JSON documents are kept in a bounded LRU cache so that
// registration pages shared between lookups are downloaded once.
package nuget
