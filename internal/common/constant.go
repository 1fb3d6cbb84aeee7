package common

// TokenCookieName is the name of the cookie carrying the encrypted
// session token.
const TokenCookieName = "ritw-token"
