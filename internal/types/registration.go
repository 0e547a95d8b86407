package types

import "encoding/base64"

// NewWorkerRegistration base64-encodes url for transport.
func NewWorkerRegistration(url string, memoryMB int) WorkerRegistration {
	return WorkerRegistration{
		URLBase64: base64.StdEncoding.EncodeToString([]byte(url)),
		MemoryMB:  memoryMB,
	}
}

// URL decodes the registration's base64-encoded URL.
func (r WorkerRegistration) URL() (string, error) {
	raw, err := base64.StdEncoding.DecodeString(r.URLBase64)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
