// Package classifier is the HTTP client for the text classifier service.
//
// The service exposes POST /predict, taking {"texts": [...]} and returning
// {"predictions": [...]}, and GET /models describing the loaded model. The
// client maps its failures onto the task package's transient and permanent
// backend errors.
package classifier
