// Package gateway issues every API call of the sync layer.
//
// Execute attaches the bearer token, records the advisory rate-limit
// headers, and unwraps the response envelope. A 401 whose error code is
// TOKEN_EXPIRED is answered with one refresh and one retry of the same
// request; every other failure comes back as a typed error and is never
// retried here.
//
// Errors fall into two families:
//   - *Error: the server answered with a non-success envelope or status;
//   - *NetworkError: no usable answer arrived (dial, DNS, reset, timeout,
//     cancellation, truncated body). IsNetwork reports this family.
package gateway
