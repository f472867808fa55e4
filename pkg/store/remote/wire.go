package remote

import (
	"github.com/treestash/treestash/pkg/model"
)

// JSON shapes of the remote isolate-style service

type namespaceSpec struct {
	Compression string `json:"compression"`
	DigestHash  string `json:"digest_hash"`
	Namespace   string `json:"namespace"`
}

func specFor(ref model.ServerRef) namespaceSpec {
	return namespaceSpec{
		Compression: ref.Compression(),
		DigestHash:  ref.HashAlgo().Name,
		Namespace:   ref.Namespace(),
	}
}

type digestItem struct {
	Digest     string `json:"digest"`
	IsIsolated bool   `json:"is_isolated"`
	Size       int64  `json:"size"`
}

type preuploadRequest struct {
	Items     []digestItem  `json:"items"`
	Namespace namespaceSpec `json:"namespace"`
}

type preuploadStatus struct {
	Index        int    `json:"index"`
	UploadTicket string `json:"upload_ticket"`
	GSUploadURL  string `json:"gs_upload_url,omitempty"`
}

type preuploadResponse struct {
	Items []preuploadStatus `json:"items"`
}

type storeInlineRequest struct {
	UploadTicket string `json:"upload_ticket"`
	Content      []byte `json:"content"` // base64 on the wire
}

type finalizeRequest struct {
	UploadTicket string `json:"upload_ticket"`
}

type retrieveRequest struct {
	Digest    string        `json:"digest"`
	Namespace namespaceSpec `json:"namespace"`
	Offset    int64         `json:"offset"`
}

type retrieveResponse struct {
	Content []byte `json:"content,omitempty"` // inline payload, base64 on the wire
	URL     string `json:"url,omitempty"`     // staged blob to GET with a Range header
}

type serverDetailsResponse struct {
	ServerVersion string `json:"server_version"`
}
