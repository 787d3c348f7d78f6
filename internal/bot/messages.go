package bot

const (
	msgNoSession = "👋 Welcome! To book tickets, please scan the QR code at the venue or send the show code printed under it."
	msgScanAgain = "Scan the show QR code any time to start again."
	msgNotFound  = "Sorry, we couldn't find what you were looking for. " + msgScanAgain
	msgExpired   = "⏰ Your seat hold expired before payment was confirmed, so the seats were released."
	msgTryLater  = "Sorry, something went wrong on our side. Please try again in a moment."
	msgAborted   = "❌ Your booking has been cancelled and any held seats were released. " + msgScanAgain

	msgDidntUnderstand = "🤔 Sorry, I didn't understand that. Use the buttons in the last message, start over, or cancel."
	msgConfirmedHelp   = "✅ Your booking is confirmed. Show the QR ticket at the entrance. Need to cancel?"
	msgKeepBooking     = "👍 No changes made. Your booking is still confirmed."

	msgDetailsForm = "📝 Please reply with your details in this format:\n\n" +
		"NAME: Your Full Name\n" +
		"AGE: 25\n" +
		"EMAIL: you@example.com"
)
