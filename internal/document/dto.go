package document

// UploadInput is a received file after the transport layer read it.
type UploadInput struct {
	Filename string
	Data     []byte
	// Process runs extraction right away; false defers it to
	// POST /documents/{id}/process.
	Process bool
}

type DocumentsResponse struct {
	Documents []*Document `json:"documents"`
}
