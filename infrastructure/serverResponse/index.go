package server_response

var Responder = ginResponder{}
