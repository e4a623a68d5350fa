package scraper

// session is the bearer credential pair of one device. Both fields are
// empty until the first successful login and are always replaced together.
type session struct {
	tokenType   string
	accessToken string
}

func (s *session) set(tokenType, accessToken string) {
	s.tokenType, s.accessToken = tokenType, accessToken
}

func (s *session) authenticated() bool {
	return s.tokenType != "" && s.accessToken != ""
}

// authorization returns the Authorization header value, or "" before login.
func (s *session) authorization() string {
	if !s.authenticated() {
		return ""
	}
	return s.tokenType + " " + s.accessToken
}
