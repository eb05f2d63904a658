package config

type S3Config struct {
	BucketName string `yaml:"bucket"`
	Region     string `yaml:"region"`
	// Endpoint overrides the AWS endpoint, e.g. for S3-compatible stores.
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

func (s *S3Config) applyEnv() {
	s.BucketName = getEnv("AWS_S3_BUCKET_NAME", s.BucketName)
	s.Region = getEnv("AWS_REGION", s.Region)
	s.Endpoint = getEnv("AWS_ENDPOINT", s.Endpoint)
	s.AccessKey = getEnv("AWS_ACCESS_KEY", s.AccessKey)
	s.SecretKey = getEnv("AWS_SECRET_KEY", s.SecretKey)
}

// GetS3Config returns the S3 section of the process configuration.
func GetS3Config() *S3Config {
	return &GetConfig().Storage.S3
}
