// Package auth is the token lifecycle and identity linking core.
//
// Tokens:
//   - TokenCodec signs HS256 access and refresh tokens with a single key. The
//     subject is always the account's opaque id; refresh tokens carry a jti.
//
// Sessions:
//   - RefreshTokenStore keeps at most one live refresh session per (account,
//     device). Every login and refresh rotates: the previous session is
//     revoked and a new one inserted in the same transaction. Revoked rows are
//     soft deleted and kept so a replayed refresh token is recognized.
//
// Identities:
//   - IdentityResolver maps a verified email or an OAuth profile onto an
//     account, creating both when none exists. ProviderLinks is the registry
//     of which account owns which external identity.
//   - AccountMergeEngine links a new identity to the calling account and, when
//     another account already owns it, absorbs that account.
//
// Service wires the pieces into the EmailLogin, SocialLogin, LinkAccount,
// Refresh and Logout flows. Provider adapters live in the social package.
package auth
