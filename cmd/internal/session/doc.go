// Package session owns credential validity for the sync layer.
//
// A Manager is constructed once per process and handed to everything that
// needs a bearer token. It decides when the stored credential pair must be
// renewed and guarantees that at most one refresh network call is in flight:
// concurrent callers that discover an expired credential all join the same
// call and observe the same outcome.
//
// Renewal happens three ways:
//   - GetValidToken blocks on a refresh when the access token is expired;
//   - GetValidToken starts a background refresh when the token is inside the
//     renewal threshold, returning the still-valid token immediately;
//   - a proactive poll loop, active only while the application is in the
//     foreground, renews tokens that are about to expire.
//
// A failed refresh is fatal for the session: the poll loop stops, the
// credential store is cleared and the registered logout callback runs.
// That is the only path by which this layer logs the user out.
//
// The refresh endpoint is called directly over HTTP and never through the
// request gateway, so a 401 on refresh cannot recurse into another refresh.
package session
