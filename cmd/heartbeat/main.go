// Command heartbeat estimates heart rate from a webcam or a video file.
package main

func main() {
	Execute()
}
