/*
Package httpserver serves the collector API with graceful shutdown and connection metrics.
*/
package httpserver
