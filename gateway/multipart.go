package gateway

import (
	"bytes"
	"io"
	"mime/multipart"

	"github.com/pkg/errors"
)

func encodeMultipart(form *MultipartForm) (payload []byte, contentType string, err error) {
	if form == nil {
		return nil, "", errors.New("[gateway] multipart form is required")
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for field, value := range form.Fields {
		if err := writer.WriteField(field, value); err != nil {
			return nil, "", errors.Wrapf(err, "[gateway] write field %q", field)
		}
	}

	if form.File != nil {
		part, err := writer.CreateFormFile(form.FileField, form.FileName)
		if err != nil {
			return nil, "", errors.Wrap(err, "[gateway] create file part")
		}
		if _, err := io.Copy(part, form.File); err != nil {
			return nil, "", errors.Wrap(err, "[gateway] copy file part")
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", errors.Wrap(err, "[gateway] finalize form")
	}

	return buf.Bytes(), writer.FormDataContentType(), nil
}
