package devauth

import "time"

// DemoPassword is the password of every seeded demo user.
const DemoPassword = "labpass"

// SeedDemo adds a technician ("jdoe") and a pathologist ("drsmith", TOTP
// enrolled) to dir. It returns drsmith's TOTP secret.
func SeedDemo(dir *Directory, now time.Time) (string, error) {
	approveUntil := now.Add(8 * time.Hour)

	if _, err := dir.AddUser(UserSpec{
		Username:    "jdoe",
		Password:    DemoPassword,
		DisplayName: "Jo Doe",
		Email:       "jdoe@lab.example",
		Roles:       []string{"technician"},
		Permissions: []Permission{
			{ID: 1, Name: "Read results", Code: "results:read"},
			{ID: 2, Name: "Approve results", Code: "results:approve", ExpiresAt: &approveUntil},
		},
		Attributes: map[string]string{"site": "north"},
	}); err != nil {
		return "", err
	}

	if _, err := dir.AddUser(UserSpec{
		Username:    "drsmith",
		Password:    DemoPassword,
		DisplayName: "Dr Sam Smith",
		Email:       "ssmith@lab.example",
		Roles:       []string{"pathologist"},
		Permissions: []Permission{
			{ID: 1, Name: "Read results", Code: "results:read"},
			{ID: 2, Name: "Approve results", Code: "results:approve"},
			{ID: 3, Name: "Sign reports", Code: "reports:sign"},
		},
	}); err != nil {
		return "", err
	}

	return dir.EnrollTOTP("drsmith", DefaultIssuer)
}
