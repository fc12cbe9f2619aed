package constants

// veridoc response codes
// these consist of 4 digit numbers
//
// the 1st 3 are randomly generated but represent specific scenarios
// 4th indicates if the client should stop the capture loop. 0 means keep
// capturing and retry with a new shot. 1 means stop, the attempt is over.

var FRONT_MISSING_MARKERS uint = 3210
var FRONT_MALFORMED_IDENTIFIER uint = 3220
var FRONT_DUPLICATE_IDENTITY uint = 3231
var FRONT_NO_FACE_FOUND uint = 3240
var BACK_NO_MARKERS uint = 4310
var BACK_OCR_FAILED uint = 4321
var BACK_ID_EXTRACTION_FAILED uint = 4341
var BACK_ID_MISMATCH uint = 4331
var LIVENESS_CLOSED_EXPECTED uint = 5411
var LIVENESS_OPEN_EXPECTED uint = 5421
var FACE_MISMATCH uint = 5431
var SESSION_NOT_FOUND uint = 6511
var SESSION_WRONG_STAGE uint = 6521
var INFERENCE_TIMEOUT uint = 7610

var PRIMARY_ID_DIGITS = 18
var COMPARE_ID_DIGITS = 9

var SUPPORT_EMAIL = "help@veridoc.io"
