package httpclient

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
)

// FileUpload is one file part of a multipart request.
type FileUpload struct {
	// FieldName is the form field carrying the file.
	FieldName string
	// FileName is the file name reported to the server.
	FileName string
	// Reader provides the file content.
	Reader io.Reader
}

type formField struct {
	key, value string
}

// File adds a file part read from filePath. The file is opened when the
// request is built.
//
//	res, err := client.Request("UploadInvoice").
//	    File("document", "/tmp/invoice.pdf").
//	    FormField("orderId", "42").
//	    EnsureSuccess().
//	    Post(ctx, "/invoices")
func (rb *RequestBuilder) File(fieldName, filePath string) *RequestBuilder {
	rb.fileUploads = append(rb.fileUploads, FileUpload{
		FieldName: fieldName,
		FileName:  filepath.Base(filePath),
		Reader:    &lazyFileReader{path: filePath},
	})
	return rb
}

// FileReader adds a file part from an in-memory reader.
func (rb *RequestBuilder) FileReader(fieldName, fileName string, reader io.Reader) *RequestBuilder {
	rb.fileUploads = append(rb.fileUploads, FileUpload{
		FieldName: fieldName,
		FileName:  fileName,
		Reader:    reader,
	})
	return rb
}

// FormField adds a plain field to a multipart request. Fields are written
// in the order added, before any file part.
func (rb *RequestBuilder) FormField(key, value string) *RequestBuilder {
	rb.formFields = append(rb.formFields, formField{key: key, value: value})
	return rb
}

func (rb *RequestBuilder) buildMultipart() (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	for _, f := range rb.formFields {
		if err := writer.WriteField(f.key, f.value); err != nil {
			return nil, "", err
		}
	}

	for _, file := range rb.fileUploads {
		if err := writeFilePart(writer, file); err != nil {
			return nil, "", fmt.Errorf("httpclient: multipart %q: %w", file.FieldName, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return body, writer.FormDataContentType(), nil
}

func writeFilePart(writer *multipart.Writer, file FileUpload) error {
	reader := file.Reader
	if lazy, ok := reader.(*lazyFileReader); ok {
		f, err := os.Open(lazy.path)
		if err != nil {
			return err
		}
		defer f.Close()
		reader = f
	}

	part, err := writer.CreateFormFile(file.FieldName, file.FileName)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, reader)
	return err
}

// lazyFileReader marks a path that buildMultipart opens on demand.
type lazyFileReader struct {
	path string
}

func (l *lazyFileReader) Read(_ []byte) (int, error) {
	return 0, io.EOF
}
