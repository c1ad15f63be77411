// Package iam resolves inbound request credentials to a Principal and answers
// capability checks for it.
//
// Resolution tries, in order, the session cookie, the Bearer token and the
// api_key query parameter:
//
//	Request → MultiAuth → Service.AuthenticateRequest → Principal (user or anonymous)
//	       ↓
//	   Handler → Principal.CanView/CanEdit/CanDownload/CanDelete(Resource)
//
// A request that carries no usable credential resolves to the Anonymous
// Principal, whose capabilities follow the anonymous_access setting.
// Resolution never writes to the store; Service.Touch records activity and is
// only called by endpoints that opt in.
package iam
