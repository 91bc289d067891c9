// Package feeds loads the ordered list of package sources declared in a
// nuget.config file together with their credentials.
//
// Credentials come from the packageSourceCredentials section, whose element
// names are source keys with spaces encoded as _x0020_. They can be overridden
// from the tool configuration through env:NAME or file:/path token sources,
// and values may reference environment variables (including those declared in
// a .env file beside the solution) using the %NAME% syntax.
package feeds
