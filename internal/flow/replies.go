package flow

// Customer-facing reply templates. Every internal fault degrades to
// replyNotUnderstood so the customer experience is uniform regardless of
// cause.
const (
	replyNotUnderstood  = "❌ Lo siento, no entendí bien tu mensaje."
	replyOrderPrompt    = "📝 Parece que quieres realizar un pedido. Escribe todo en un solo mensaje a continuación y lo registraremos. ¡Gracias!"
	replyOrderConfirmed = "✅ ¡Tu pedido quedó registrado! En breve una persona del equipo lo confirmará contigo. ¡Gracias!"
	replyHandoff        = "🧑‍🍳 Voy a pasarte con una persona del equipo para ayudarte mejor. En un momento te atienden."
	replyOrderInquiry   = "🍽️ ¿Qué te gustaría ordenar? escribe todo en un solo mensaje"

	replyHoursFormat    = "⏰ Nuestro horario: %s"
	replyContactFormat  = "📱 Contáctanos en: %s"
	replyLocationFormat = "📍 Nos ubicamos en: %s"
	replyPaymentFormat  = "💳 Métodos de pago: %s"
	replyFarewellFormat = "👋 ¡Gracias por escribirnos! Te esperamos pronto en %s."

	replyPaymentQRFormat = "💳 Métodos de pago: %s\nEscanea el código para tu referencia de pago."
)
