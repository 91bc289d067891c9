// Package solution reads solution manifests and extracts the member projects
// they list, in declaration order, as absolute project file paths.
package solution
