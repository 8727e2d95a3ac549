package generator

const (
	UseImageCompression     = true
	ImageCompressionQuality = 75
	cacheKeyImageData       = "image_data:"
	cacheKeyFileAPIURI      = "file_api_uri:"
	cacheKeyFileAPIName     = "file_api_name:"
	cacheKeyFileAPIMIME     = "file_api_mime:"
	maxReferenceImageBytes  = 20 << 20
	// これを超える参照画像はインラインではなく File API 経由で渡す
	maxInlineImageBytes = 4 << 20
	maxRedirects        = 5
)

// ImageOutput は Core の内部解析結果
type ImageOutput struct {
	Data     []byte
	MimeType string
	UsedSeed int64
}
