// internal/models/citation.go
package models

// TextSpan points into the generated answer.
type TextSpan struct {
	Text  string `json:"text"`
	Start int32  `json:"start"`
	End   int32  `json:"end"`
}

// Citation links a part of the answer to the passages that justified it.
type Citation struct {
	GeneratedResponsePart TextSpan    `json:"generatedResponsePart"`
	RetrievedReferences   []Reference `json:"retrievedReferences"`
}

// Reference is one retrieved passage.
type Reference struct {
	Content  string   `json:"content,omitempty"`
	Location Location `json:"location,omitempty"`
}

// LocationKind is the discriminant reported by the backend.
type LocationKind string

const (
	LocationKindS3  LocationKind = "S3"
	LocationKindWeb LocationKind = "WEB"
)

// Location is a closed set: S3Location, WebLocation or OtherLocation.
// The unexported method keeps other packages from adding variants.
type Location interface {
	Kind() LocationKind
	isLocation()
}

// S3Location is a document stored in object storage.
type S3Location struct {
	URI string `json:"uri"`
}

func (S3Location) Kind() LocationKind { return LocationKindS3 }
func (S3Location) isLocation()        {}

// WebLocation is a crawled web page.
type WebLocation struct {
	URL string `json:"url"`
}

func (WebLocation) Kind() LocationKind { return LocationKindWeb }
func (WebLocation) isLocation()        {}

// OtherLocation covers every source kind without a citable reference
// (Confluence, SharePoint, custom sources, unknown tags).
type OtherLocation struct {
	Type string `json:"type"`
}

func (o OtherLocation) Kind() LocationKind { return LocationKind(o.Type) }
func (OtherLocation) isLocation()          {}

// CitationRef turns a location into the string handed back to clients.
// Only S3 and web locations carry a reference.
func CitationRef(loc Location) *string {
	switch l := loc.(type) {
	case S3Location:
		return stringPtr(l.URI)
	case WebLocation:
		return stringPtr(l.URL)
	case OtherLocation:
		return nil
	default:
		return nil
	}
}

func stringPtr(s string) *string {
	return &s
}
