package util

const TimeFormat = "2006-01-02 15:04:05"

const (
	StorageLocal = "local"
	StorageMinio = "minio"
	StorageOSS   = "oss"
)

// 作答附件允许的 MIME 类型
const (
	MimeImage = "image/"
	MimePDF   = "application/pdf"
	MimeText  = "text/plain"
	MimeZip   = "application/zip"
)

var AllowedAttachmentTypes = []string{MimeImage, MimePDF, MimeText, MimeZip}

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)
