package config

type MinioConfig struct {
	AccessKey  string `yaml:"access_key"`
	SecretKey  string `yaml:"secret_key"`
	Endpoint   string `yaml:"endpoint"`
	UseSSL     bool   `yaml:"use_ssl"`
	Region     string `yaml:"region"`
	BucketName string `yaml:"bucket"`
}

func (m *MinioConfig) applyEnv() {
	m.AccessKey = getEnv("MINIO_ACCESS_KEY", m.AccessKey)
	m.SecretKey = getEnv("MINIO_SECRET_KEY", m.SecretKey)
	m.Endpoint = getEnv("MINIO_ENDPOINT", m.Endpoint)
	m.UseSSL = getEnvBool("MINIO_USE_SSL", m.UseSSL)
	m.Region = getEnv("MINIO_REGION", m.Region)
	m.BucketName = getEnv("MINIO_BUCKET_NAME", m.BucketName)
}

// GetMinioConfig returns the MinIO section of the process configuration.
func GetMinioConfig() *MinioConfig {
	return &GetConfig().Storage.Minio
}
