package core

// Donor is a registered account. The password is only ever kept as a hash.
type Donor struct {
	FullName     string `json:"fullName"`
	Email        string `json:"email"`
	Country      string `json:"country,omitempty"`
	PasswordHash string `json:"passwordHash"`
	ProfileImage string `json:"profileImage,omitempty"` // base64 encoded
}

// Profile is the part of a donor record that is safe to cache and show.
type Profile struct {
	UserID       string `json:"userId" toml:"user_id"`
	FullName     string `json:"fullName" toml:"full_name"`
	Email        string `json:"email" toml:"email"`
	Country      string `json:"country,omitempty" toml:"country"`
	ProfileImage string `json:"profileImage,omitempty" toml:"profile_image"`
}

// Profile strips credentials from the record.
func (d Donor) Profile() Profile {
	return Profile{
		UserID:       UserKey(d.Email),
		FullName:     d.FullName,
		Email:        d.Email,
		Country:      d.Country,
		ProfileImage: d.ProfileImage,
	}
}
