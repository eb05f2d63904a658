package config

// TextractConfig holds AWS credentials for the Textract OCR engine. Empty
// keys defer to the default AWS credential chain.
type TextractConfig struct {
	Region    string
	AccessKey string
	SecretKey string
}

// GetTextractConfig shares region and credentials with the S3 settings.
func GetTextractConfig() *TextractConfig {
	s3 := GetS3Config()
	return &TextractConfig{
		Region:    s3.Region,
		AccessKey: s3.AccessKey,
		SecretKey: s3.SecretKey,
	}
}
