package main

import "booking-backend/cmd"

func main() {
	cmd.Run()
}
