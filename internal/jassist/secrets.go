package jassist

// Secret names with a fixed meaning.
const (
	SecretOpenAIKey         = "openai_api_key"
	SecretDriveClientID     = "gdrive_client_id"
	SecretDriveClientSecret = "gdrive_client_secret"
	SecretAWSAccessKeyID    = "aws_access_key_id"
	SecretAWSSecretKey      = "aws_secret_access_key"
)

// DriveTokenSecret is the name of the sealed OAuth token for userID.
func DriveTokenSecret(userID string) string {
	return "gdrive_token." + userID
}

// SecretStore keeps credentials sealed at rest.
type SecretStore interface {
	// Get returns the secret called name, or "" when it is not set.
	Get(name string) (string, error)

	// Set stores value under name, replacing any previous value.
	Set(name, value string) error

	// Names lists the stored secret names in sorted order.
	Names() ([]string, error)
}
