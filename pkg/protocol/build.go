package protocol

// Request builders (client → server).

// RequestCreateUser builds an account-creation request. The password is
// digested before it reaches this layer; see pkg/security.
func (c *Codec) RequestCreateUser(name, passwordDigest string) ([]byte, error) {
	return c.Encode(TypeCreateUser, name, passwordDigest)
}

// RequestLogin builds a login request carrying the account name and
// password digest.
func (c *Codec) RequestLogin(name, passwordDigest string) ([]byte, error) {
	return c.Encode(TypeLogin, name, passwordDigest)
}

// RequestLogout builds a logout request.
func (c *Codec) RequestLogout() ([]byte, error) {
	return c.Encode(TypeLogout)
}

// RequestDisconnect informs the peer this side is going away.
func (c *Codec) RequestDisconnect() ([]byte, error) {
	return c.Encode(TypeDisconnect)
}

// RequestSay builds a say request addressed to everyone.
func (c *Codec) RequestSay(text string) ([]byte, error) {
	return c.Encode(TypeSay, text)
}

// RequestWhisper builds a whisper request addressed to one user.
func (c *Codec) RequestWhisper(target, text string) ([]byte, error) {
	return c.Encode(TypeWhisper, target, text)
}

// Notification builders (server → client). The text-carrying types fall
// back to their default text when custom is empty.

func (c *Codec) textOrDefault(t MessageType, custom string) ([]byte, error) {
	if custom == "" {
		custom = DefaultText(t)
	}
	return c.Encode(t, custom)
}

// SuccessGeneric builds a generic success notification.
func (c *Codec) SuccessGeneric(custom string) ([]byte, error) {
	return c.textOrDefault(TypeSuccess, custom)
}

// SuccessConnect carries the placeholder name assigned on accept.
func (c *Codec) SuccessConnect(placeholderName string) ([]byte, error) {
	return c.Encode(TypeConnectOK, placeholderName)
}

// SuccessLogin builds a login-success notification.
func (c *Codec) SuccessLogin(custom string) ([]byte, error) {
	return c.textOrDefault(TypeLoginOK, custom)
}

// SuccessLogout carries the fresh placeholder name assigned on logout.
func (c *Codec) SuccessLogout(newName string) ([]byte, error) {
	return c.Encode(TypeLogoutOK, newName)
}

// SuccessUserCreated builds an account-created notification.
func (c *Codec) SuccessUserCreated(custom string) ([]byte, error) {
	return c.textOrDefault(TypeUserCreated, custom)
}

// ErrorGeneric builds a generic error notification.
func (c *Codec) ErrorGeneric(custom string) ([]byte, error) {
	return c.textOrDefault(TypeError, custom)
}

// ErrorLogin builds a login-failure notification.
func (c *Codec) ErrorLogin(custom string) ([]byte, error) {
	return c.textOrDefault(TypeLoginError, custom)
}

// ErrorMalformedData answers a frame whose declared and actual lengths
// disagreed, or a request missing required fields.
func (c *Codec) ErrorMalformedData(custom string) ([]byte, error) {
	return c.textOrDefault(TypeMalformedData, custom)
}

// ErrorUserExists answers a create-user request for a taken name.
func (c *Codec) ErrorUserExists(custom string) ([]byte, error) {
	return c.textOrDefault(TypeUserExists, custom)
}

// ErrorUserOffline answers a whisper to a name with no live session.
func (c *Codec) ErrorUserOffline(custom string) ([]byte, error) {
	return c.textOrDefault(TypeUserOffline, custom)
}

// PeerConnected announces a new session to the other clients.
func (c *Codec) PeerConnected(name string) ([]byte, error) {
	return c.Encode(TypePeerConnected, name)
}

// PeerDisconnected announces a departed session to the other clients.
func (c *Codec) PeerDisconnected(name string) ([]byte, error) {
	return c.Encode(TypePeerDisconnected, name)
}

// PeerRenamed announces a display-name change (login or logout).
func (c *Codec) PeerRenamed(oldName, newName string) ([]byte, error) {
	return c.Encode(TypePeerRenamed, oldName, newName)
}

// PeerList carries a full snapshot of the other connected display names.
func (c *Codec) PeerList(names ...string) ([]byte, error) {
	return c.Encode(TypePeerList, names...)
}

// ServerNotice carries free-form text from the server itself.
func (c *Codec) ServerNotice(text string) ([]byte, error) {
	return c.Encode(TypeServerNotice, text)
}

// WhisperFrom delivers a whisper to its target.
func (c *Codec) WhisperFrom(sender, text string) ([]byte, error) {
	return c.Encode(TypeWhisperFrom, sender, text)
}

// SayFrom delivers a say broadcast to one recipient.
func (c *Codec) SayFrom(sender, text string) ([]byte, error) {
	return c.Encode(TypeSayFrom, sender, text)
}
