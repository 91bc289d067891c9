package nuget

import (
	"bytes"
	"encoding/json"
	"strings"
)

type serviceIndexDocument struct {
	Version   string                 `json:"version"`
	Resources []serviceIndexResource `json:"resources"`
}

type serviceIndexResource struct {
	ID   string `json:"@id"`
	Type string `json:"@type"`
}

type registrationIndexDocument struct {
	Count int                `json:"count"`
	Items []registrationPage `json:"items"`
}

type registrationPage struct {
	ID    string             `json:"@id"`
	Count int                `json:"count"`
	Lower string             `json:"lower"`
	Upper string             `json:"upper"`
	Items []registrationLeaf `json:"items"`
}

type registrationLeaf struct {
	ID           string          `json:"@id"`
	CatalogEntry catalogEntryRef `json:"catalogEntry"`
}

type catalogEntry struct {
	URL              string            `json:"@id"`
	ID               string            `json:"id"`
	Version          string            `json:"version"`
	DependencyGroups []dependencyGroup `json:"dependencyGroups"`
}

type dependencyGroup struct {
	TargetFramework string              `json:"targetFramework"`
	Dependencies    []packageDependency `json:"dependencies"`
}

type packageDependency struct {
	ID    string `json:"id"`
	Range string `json:"range"`
}

// catalogEntryRef holds a catalog entry that registration leaves either inline or link by URL.
type catalogEntryRef struct {
	URL   string
	Entry *catalogEntry
}

// UnmarshalJSON accepts both the inlined object and the string link forms.
func (reference *catalogEntryRef) UnmarshalJSON(data []byte) error {
	trimmedData := bytes.TrimSpace(data)
	if len(trimmedData) > 0 && trimmedData[0] == '"' {
		return json.Unmarshal(trimmedData, &reference.URL)
	}

	var entry catalogEntry
	if unmarshalError := json.Unmarshal(trimmedData, &entry); unmarshalError != nil {
		return unmarshalError
	}
	reference.URL = entry.URL
	reference.Entry = &entry
	return nil
}

// version returns the inlined catalog entry version, or an empty string when the entry is only linked.
func (reference catalogEntryRef) version() string {
	if reference.Entry == nil {
		return ""
	}
	return strings.TrimSpace(reference.Entry.Version)
}
